package main

import "github.com/RyanBlaney/sonido-cough/cmd"

func main() {
	cmd.Execute()
}
