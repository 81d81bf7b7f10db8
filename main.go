package main

import "github.com/kozaktomas/vision-assist/cmd"

func main() {
	cmd.Execute()
}
