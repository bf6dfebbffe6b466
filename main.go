package main

import "github.com/chuikoffru/voicerec/cmd"

func main() {
	cmd.Execute()
}
