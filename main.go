package main

import "github.com/sweetshop/apiserver/cmd"

func main() {
	cmd.Execute()
}
