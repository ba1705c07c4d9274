package templates

import "os"

const configTemplate = `
environment: dev
port: 5000
host: 0.0.0.0
locale: vi

model:
  artifact: ~/.lesion/models/skin_lesion_model.msgpack
  # source: s3://lesion-artifacts/skin_lesion_model.msgpack
  # backbone_weights: ~/.lesion/models/backbone_weights.msgpack
  # onnxruntime_lib: /usr/local/lib/libonnxruntime.so
  image_size: 128

cors_origins:
  - http://localhost:3000
  - http://127.0.0.1:3000
`

func GetConfigTemplate() string {
	return configTemplate
}

func WriteConfig(path string) error {
	configTemplate := GetConfigTemplate()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(configTemplate)
	if err != nil {
		return err
	}

	return nil
}
