package main

import "github.com/ramiqadoumi/task-inbox/services/notifier/cli"

func main() {
	cli.Execute()
}
