package gateway

// APICategory identifies one of the API groups a gateway can expose.
// A gateway advertises the categories it serves during the capability
// handshake; requests for methods outside the advertised set are refused
// locally, before any network round-trip.
type APICategory string

const (
	// APIFile covers content storage and retrieval methods.
	APIFile APICategory = "file"
	// APIVote covers ballot submission and election state methods.
	APIVote APICategory = "vote"
	// APICensus covers census tree mutation and proof methods.
	APICensus APICategory = "census"
	// APIResults covers vote scrutiny and tally methods.
	APIResults APICategory = "results"
	// APIInfo covers the capability handshake itself.
	APIInfo APICategory = "info"
)

// String returns the string representation of the category.
func (c APICategory) String() string { return string(c) }

// InfoMethod is the reserved capability-handshake method. Its response
// carries the advertised API list and the gateway health score. It is
// always allowed through the capability gate, since it is how the
// advertised set is learned in the first place.
const InfoMethod = "getInfo"

// methodAPIs maps every known request method to the API category a gateway
// must advertise for the method to be sent.
var methodAPIs = map[string]APICategory{
	// File API
	"fetchFile": APIFile,
	"addFile":   APIFile,
	"pinList":   APIFile,
	"pinFile":   APIFile,
	"unpinFile": APIFile,

	// Vote API
	"submitEnvelope":    APIVote,
	"getEnvelope":       APIVote,
	"getEnvelopeStatus": APIVote,
	"getEnvelopeHeight": APIVote,
	"getEnvelopeList":   APIVote,
	"getProcessKeys":    APIVote,
	"getProcessList":    APIVote,
	"getBlockHeight":    APIVote,

	// Census API
	"addCensus":     APICensus,
	"addClaim":      APICensus,
	"addClaimBulk":  APICensus,
	"getRoot":       APICensus,
	"getSize":       APICensus,
	"genProof":      APICensus,
	"checkProof":    APICensus,
	"dump":          APICensus,
	"dumpPlain":     APICensus,
	"importDump":    APICensus,
	"importRemote":  APICensus,
	"publishCensus": APICensus,

	// Results API
	"getResults":             APIResults,
	"getProcListResults":     APIResults,
	"getProcListLiveResults": APIResults,
	"getScrutinizerEntities": APIResults,

	// Info API
	InfoMethod: APIInfo,
}

// APIForMethod returns the API category required for the given method,
// or false if the method is unknown.
func APIForMethod(method string) (APICategory, bool) {
	api, ok := methodAPIs[method]
	return api, ok
}
