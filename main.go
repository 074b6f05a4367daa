package main

import "github.com/BenjaminRains/etlpipe/cmd"

func main() {
	cmd.Execute()
}
