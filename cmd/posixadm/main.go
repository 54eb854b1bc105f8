package main

import "github.com/isometry/posixadm/cmd/posixadm/cmd"

func main() {
	cmd.Execute()
}
