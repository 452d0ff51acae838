package main

import "github.com/MeKo-Tech/formocr/cmd/formocr/cmd"

func main() {
	cmd.Execute()
}
