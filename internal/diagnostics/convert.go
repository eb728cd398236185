package diagnostics

import (
	"amigo/internal/ir"
	"amigo/internal/reader"
)

// FromError classifies an error returned by the reader or the core
// packages into a CompilerError carrying the right E0xxx code, so
// cmd/amic can render every failure the same way regardless of which
// layer raised it. Only the reader's ParseError and the ir package's
// error types are classified; any other error, such as a pass
// rejecting an option, comes back with an empty Code.
func FromError(filename string, err error) *CompilerError {
	switch e := err.(type) {
	case *reader.ParseError:
		return &CompilerError{
			Level:    Error,
			Code:     ErrorParse,
			Message:  e.Message,
			Position: Position{Filename: filename, Line: e.Line, Column: e.Column},
			Length:   1,
		}
	case *ir.AnonymousBlockError:
		return &CompilerError{Level: Error, Code: ErrorAnonymousBlock, Message: e.Error(), Position: Position{Filename: filename}}
	case *ir.EmptyCFGError:
		return &CompilerError{Level: Error, Code: ErrorEmptyCFG, Message: e.Error(), Position: Position{Filename: filename}}
	case *ir.NoEntryPointError:
		return &CompilerError{Level: Error, Code: ErrorNoEntryPoint, Message: e.Error(), Position: Position{Filename: filename}}
	case *ir.BadLabelError:
		return &CompilerError{Level: Error, Code: ErrorBadAddress, Message: e.Error(), Position: Position{Filename: filename}}
	case *ir.BadFlowError:
		return &CompilerError{Level: Error, Code: ErrorBadFlow, Message: e.Error(), Position: Position{Filename: filename}}
	case *ir.BadPhiError:
		return &CompilerError{Level: Error, Code: ErrorBadPhi, Message: e.Error(), Position: Position{Filename: filename}}
	default:
		return &CompilerError{Level: Error, Message: err.Error(), Position: Position{Filename: filename}}
	}
}
