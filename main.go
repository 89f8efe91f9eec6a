package main

import "github.com/andresmejia3/shades/cmd"

func main() {
	cmd.Execute()
}
