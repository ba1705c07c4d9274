package main

import cmd "github.com/cozy-creator/lesion-server/cmd/lesion"

func main() {
	cmd.Execute()
}
