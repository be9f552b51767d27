package main

import "github.com/dbsmedya/tablesync/cmd/tablesync/cmd"

func main() {
	cmd.Execute()
}
