package main

import "github.com/ValentinKolb/kvdown/cmd"

func main() {
	cmd.Execute()
}
