package main

import "task-inbox-go/internal/cli"

func main() {
	cli.Execute()
}
