package main

import (
	"example.com/solar/services/sensor/cmd"
)

func main() {
	cmd.Execute()
}
