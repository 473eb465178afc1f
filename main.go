/*
Copyright © 2024 Dean
*/
package main

import "askhc/cmd"

func main() {
	cmd.Execute()
}
