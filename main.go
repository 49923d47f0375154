package main

import "imgpress/cmd"

func main() {
	cmd.Execute()
}
