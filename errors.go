package main

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrQueueFull         = errors.New("queue is full")
	ErrCircuitOpen       = errors.New("llm provider circuit is open")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrEmptyDocument     = errors.New("document has no content")
	ErrKnowledgeDisabled = errors.New("knowledge base is not configured")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotReady          = errors.New("whitepaper is not completed")
)
