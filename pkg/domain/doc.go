/*
Package domain contains the core models of the quire planning engine.

It defines the vocabulary the planner reasons over (facts, world states, conditions and
effects), the immutable Action definitions, Plans, execution events and the error taxonomy.
This package is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - WorldState: an immutable snapshot of production facts (booleans and counters).
  - Condition / Effect: partial world states used as preconditions, goals and deltas.
  - Action: a named unit of work with preconditions, effects, cost and execution mode.
  - Plan: an ordered, costed sequence of actions computed to reach a goal.
  - LogEvent: an append-only record of one action state transition.
*/
package domain
