package main

import "github.com/ramiqadoumi/task-inbox/services/api-gateway/cli"

func main() {
	cli.Execute()
}
