package main

import "github.com/ValentinKolb/txcache/cmd"

func main() {
	cmd.Execute()
}
