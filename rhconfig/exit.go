package rhconfig

import "log"

var exitFn = func(err error) {
	log.Fatalln(err)
}
