package main

import "github.com/MeKo-Tech/yolodet/cmd/yolodet/cmd"

func main() {
	cmd.Execute()
}
