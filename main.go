package main

import "github.com/centrominero/labvision/cmd"

func main() {
	cmd.Execute()
}
