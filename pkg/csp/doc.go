// Package csp implements an integer constraint propagator that plugs into an
// external Boolean search engine through a propagator callback interface.
//
// The package accepts linear sum constraints, difference constraints, domain
// statements, distinct constraints, and a single linear minimize objective,
// each guarded by a Boolean activation literal owned by the host solver. For
// every search thread of the host it maintains integer variable bounds
// consistent with the order literals that are currently true or false,
// creates new order literals on demand, and reports implications back to the
// host as clauses.
//
// The central concepts are:
//
//   - Order literal: a host Boolean literal encoding `v <= k` for an integer
//     variable v and a value k. Order literals form a lattice per variable;
//     chained implications between neighboring order literals keep the
//     Boolean and the integer view consistent.
//   - VarState: the per-thread view of one variable, holding stacks of bound
//     snapshots (one entry per decision level that changed the bound) and an
//     ordered value-to-literal map.
//   - State: the per-thread propagation engine. It integrates assignments to
//     order literals, dispatches affected constraints, generates reasons, and
//     undoes changes on backtracking.
//   - Propagator: the facade registered with the host. It owns the global
//     variable and constraint set, builds the thread states during Init,
//     reconciles bounds across threads in multi-shot solving, and optionally
//     translates small sum constraints into native weight constraints of the
//     host.
//
// The package does not search. All control flow is owned by the host, which
// calls Propagate when watched literals are assigned, Check at propagation
// fixpoints, and Undo on backtracking. Conflicts are reported by adding a
// falsified clause and returning false; they are a normal outcome, not an
// error. Errors are reserved for initialization problems such as inconsistent
// configuration.
package csp
