package predictor

const (
	LocaleVietnamese = "vi"
	LocaleEnglish    = "en"
	DefaultLocale    = LocaleVietnamese
)

type MessageKey string

const (
	MsgArtifactUnavailable MessageKey = "artifact_unavailable"
	MsgDecodeFailure       MessageKey = "decode_failure"
	MsgShapeMismatch       MessageKey = "shape_mismatch"
	MsgInferenceFailure    MessageKey = "inference_failure"
	MsgImageMissing        MessageKey = "image_missing"
	MsgNoFileSelected      MessageKey = "no_file_selected"
	MsgFileTooLarge        MessageKey = "file_too_large"
)

var messages = map[string]map[MessageKey]string{
	LocaleVietnamese: {
		MsgArtifactUnavailable: "Model chưa được load thành công",
		MsgDecodeFailure:       "Lỗi xử lý ảnh: không đọc được ảnh hoặc định dạng không được hỗ trợ",
		MsgShapeMismatch:       "Lỗi xử lý ảnh: kích thước ảnh không khớp với model",
		MsgInferenceFailure:    "Lỗi dự đoán",
		MsgImageMissing:        "Không tìm thấy ảnh trong request",
		MsgNoFileSelected:      "Không có file được chọn",
		MsgFileTooLarge:        "File quá lớn. Vui lòng chọn ảnh nhỏ hơn %dMB",
	},
	LocaleEnglish: {
		MsgArtifactUnavailable: "The model could not be loaded",
		MsgDecodeFailure:       "Image processing failed: the image is unreadable or its format is not supported",
		MsgShapeMismatch:       "Image processing failed: the image size does not match the model",
		MsgInferenceFailure:    "Prediction failed",
		MsgImageMissing:        "No image found in the request",
		MsgNoFileSelected:      "No file was selected",
		MsgFileTooLarge:        "File too large. Please choose an image smaller than %dMB",
	},
}

var kindMessages = map[Kind]MessageKey{
	KindArtifactUnavailable: MsgArtifactUnavailable,
	KindDecodeFailure:       MsgDecodeFailure,
	KindShapeMismatch:       MsgShapeMismatch,
	KindInferenceFailure:    MsgInferenceFailure,
}

// SupportedLocale reports whether a message table exists for locale.
func SupportedLocale(locale string) bool {
	_, ok := messages[locale]
	return ok
}

// Message returns the text for key in locale, falling back to DefaultLocale.
func Message(locale string, key MessageKey) string {
	table, ok := messages[locale]
	if !ok {
		table = messages[DefaultLocale]
	}
	return table[key]
}

// Localize fills in the user-facing message of e for locale, unless one is
// already set.
func (e *Error) Localize(locale string) *Error {
	if e.Message == "" {
		e.Message = Message(locale, kindMessages[e.Kind])
	}
	return e
}
