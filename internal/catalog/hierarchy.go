package catalog

import (
	"toolcatalog/internal/model"
)

type CustomerNode struct {
	model.Customer
	Applications []ApplicationNode `json:"applications"`
}

type ApplicationNode struct {
	model.Application
	Tools []ToolNode `json:"tools"`
}

type ToolNode struct {
	model.Tool
	Inputs  []InputNode        `json:"inputs"`
	Outputs []model.ToolOutput `json:"outputs"`
}

type InputNode struct {
	model.ToolInput
	Options []model.InputOption `json:"options"`
}

// Tree assembles the current snapshots into the customer hierarchy. Records
// whose parent is missing are left out; see Orphans.
func (c *Catalog) Tree() []CustomerNode {
	applications := groupByParent(c.Applications.Items())
	tools := groupByParent(c.Tools.Items())
	inputs := groupByParent(c.ToolInputs.Items())
	outputs := groupByParent(c.ToolOutputs.Items())
	options := groupByParent(c.InputOptions.Items())

	customers := c.Customers.Items()
	tree := make([]CustomerNode, 0, len(customers))
	for _, customer := range customers {
		node := CustomerNode{Customer: customer}
		for _, app := range applications[customer.ID] {
			appNode := ApplicationNode{Application: app}
			for _, tool := range tools[app.ID] {
				toolNode := ToolNode{Tool: tool, Outputs: outputs[tool.ID]}
				for _, input := range inputs[tool.ID] {
					toolNode.Inputs = append(toolNode.Inputs, InputNode{ToolInput: input, Options: options[input.ID]})
				}
				appNode.Tools = append(appNode.Tools, toolNode)
			}
			node.Applications = append(node.Applications, appNode)
		}
		tree = append(tree, node)
	}
	return tree
}

// Orphan is a record whose parent no longer exists.
type Orphan struct {
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
	ParentID int64  `json:"parentId"`
}

// Orphans lists every record whose parent is missing from the parent
// store's snapshot. After cascades settle the list is empty.
func (c *Catalog) Orphans() []Orphan {
	var out []Orphan
	out = appendOrphans(out, model.ApplicationKind, c.Applications.Items(), idSet(c.Customers.Items()))
	out = appendOrphans(out, model.ToolKind, c.Tools.Items(), idSet(c.Applications.Items()))
	toolIDs := idSet(c.Tools.Items())
	out = appendOrphans(out, model.ToolInputKind, c.ToolInputs.Items(), toolIDs)
	out = appendOrphans(out, model.ToolOutputKind, c.ToolOutputs.Items(), toolIDs)
	out = appendOrphans(out, model.InputOptionKind, c.InputOptions.Items(), idSet(c.ToolInputs.Items()))
	return out
}

// Counts returns the size of each collection keyed by storage key.
func (c *Catalog) Counts() map[string]int {
	return map[string]int{
		model.CustomerKind.StorageKey:    c.Customers.Count(),
		model.ApplicationKind.StorageKey: c.Applications.Count(),
		model.ToolKind.StorageKey:        c.Tools.Count(),
		model.ToolInputKind.StorageKey:   c.ToolInputs.Count(),
		model.ToolOutputKind.StorageKey:  c.ToolOutputs.Count(),
		model.InputOptionKind.StorageKey: c.InputOptions.Count(),
	}
}

func groupByParent[T model.Record[T]](items []T) map[int64][]T {
	out := make(map[int64][]T)
	for _, item := range items {
		out[item.ParentID()] = append(out[item.ParentID()], item)
	}
	return out
}

func idSet[T model.Record[T]](items []T) map[int64]bool {
	out := make(map[int64]bool, len(items))
	for _, item := range items {
		out[item.RecordID()] = true
	}
	return out
}

func appendOrphans[T model.Record[T]](out []Orphan, kind model.Kind, items []T, parents map[int64]bool) []Orphan {
	for _, item := range items {
		if !parents[item.ParentID()] {
			out = append(out, Orphan{Kind: kind.Name, ID: item.RecordID(), ParentID: item.ParentID()})
		}
	}
	return out
}
