package imc

var (
	Debug = false // set to true for verbose per-rank transport output
	Trace = false // set to true to record every terminal tracker event
)
