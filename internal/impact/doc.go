// Package impact estimates the downstream blast radius of a correction.
//
// The analyzer knows nothing about downstream computations. It asks an
// injected DependencyResolver which effects a set of changed fields would
// trigger and aggregates the answer: total affected entities, the distinct
// effect types, an estimated processing time from per-type weights, and
// warnings for large or high-severity impact.
package impact
