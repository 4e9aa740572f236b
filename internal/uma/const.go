package uma

const (
	ticketLength = 60
	rptLength    = 60
	pctLength    = 60
	// typeRPT is the "typ" header of RPTs issued as JWTs.
	typeRPT      = "JWT"
)
