package main

import (
	"os"

	"github.com/html2ndi/ndi-acceptor/fakeworker"
)

func main() {
	os.Exit(fakeworker.Main(os.Args[1:]))
}
