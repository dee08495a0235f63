package rhstore

import "log"

var exitFn = func(err error) { log.Fatalln(err) }
