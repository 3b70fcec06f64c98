// Package service implements the pyexec request flow. Service satisfies
// transport.CodeExecutor and transport.StatusReporter: it validates execute
// requests, resolves the effective timeout, runs the snippet through the
// executor, uploads output files to object storage, and keeps the execution
// record current. Object storage and record storage are optional and nil-safe.
package service
