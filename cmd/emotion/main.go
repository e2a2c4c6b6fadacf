package main

import "emotionserver/internal/cli"

func main() {
	cli.Execute()
}
