package main

import "dental-inference-service/internal/cli"

func main() {
	cli.Execute()
}
