package scanblock

import "github.com/inercia/scanblock/internal/rules"

// Action is the terminal outcome of evaluating a request.
type Action int

const (
	// ActionPass lets the request continue down the pipeline.
	ActionPass Action = iota
	// ActionList answers the request with the host score report.
	ActionList
	// ActionBlock answers the request with 503 Service Unavailable.
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionList:
		return "list"
	case ActionBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Step is the evaluation step that produced a decision.
type Step int

const (
	// StepMalformed is a request without a usable path or host; it passes unscored.
	StepMalformed Step = iota
	// StepProcessed is a request already evaluated earlier in the same pass.
	StepProcessed
	// StepListing is an authorized request for the host score report.
	StepListing
	// StepSkipped is a request exempted from scoring by the skip predicate.
	StepSkipped
	// StepAllowed is a request from an allow-listed host.
	StepAllowed
	// StepEvaluated is a request that went through classification and the threshold check.
	StepEvaluated
)

func (s Step) String() string {
	switch s {
	case StepMalformed:
		return "malformed"
	case StepProcessed:
		return "processed"
	case StepListing:
		return "listing"
	case StepSkipped:
		return "skipped"
	case StepAllowed:
		return "allowed"
	case StepEvaluated:
		return "evaluated"
	default:
		return "unknown"
	}
}

// Decision describes what the engine decided for one request.
type Decision struct {
	Action Action
	Step   Step
	Host   string

	// Matched reports whether the request matched a signature; Match holds it.
	Matched bool
	Match   rules.Match

	// Score is the host's score after evaluation. Only set for StepEvaluated.
	Score uint16

	// Reason explains a block.
	Reason string
}
