package rag

import (
	"github.com/docstack/answerbox/rag/interfaces"
	"github.com/docstack/answerbox/rag/types"
)

// Engine is an alias for interfaces.Engine
type Engine = interfaces.Engine

// Result is an alias for types.Result
type Result = types.Result
