package layout_test

import (
	"fmt"

	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
)

func ExampleCompute() {
	persons := []family.Person{
		{ID: 1, FirstName: "Anna"},
		{ID: 2, FirstName: "Ben"},
		{ID: 3, FirstName: "Cleo"},
	}
	edges := []family.ParentChildEdge{{Parent: 1, Child: 2}, {Parent: 1, Child: 3}}
	h := family.Build(family.NewGraph(family.Tree{}, persons, edges, nil), family.BuildOptions{})

	l := layout.Compute(h, layout.Options{})
	for _, n := range l.Nodes {
		fmt.Printf("%s x=%.0f y=%.0f\n", n.Name, n.X, n.Y)
	}
	// Output:
	// Anna x=0 y=0
	// Ben x=-75 y=150
	// Cleo x=75 y=150
}
