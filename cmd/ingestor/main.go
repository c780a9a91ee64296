package main

import "github.com/ramiqadoumi/task-inbox/services/ingestor/cli"

func main() {
	cli.Execute()
}
