package main

import "github.com/ramiqadoumi/task-inbox/services/scheduler/cli"

func main() {
	cli.Execute()
}
