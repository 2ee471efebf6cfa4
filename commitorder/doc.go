// Package commitorder computes a write order over a dependency graph.
//
// Nodes are added lazily as they are first referenced, and edges are added
// with AddDependency(dependency, dependent). Order runs a depth-first
// topological sort and returns dependencies before dependents; iterating the
// result backwards gives a safe delete order.
//
//	calc := commitorder.New[*metadata.ClassMetadata]()
//	calc.AddNode("Customer", customerClass)
//	calc.AddNode("Order", orderClass)
//	calc.AddDependency("Customer", "Order")
//	calc.Order() // [Customer Order]
//
// Graphs with cycles still produce an order. Keys whose relative order is
// forced by a cycle come out in first-discovery order, and Cyclic reports
// that it happened. The computed order is cached against an xxhash
// fingerprint of the graph and reused until the graph changes.
package commitorder
