// Package testcode is a framework for regression testing numerical
// programs. A configured program is run against a set of inputs, named
// numeric series are extracted from its output, and each value is compared
// against a stored benchmark within configured tolerances. Verdicts roll up
// per value, per case and per run through a worst-of status algebra.
package testcode
