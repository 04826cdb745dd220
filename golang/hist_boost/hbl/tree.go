package hbl

import (
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

//TreeNode is a node of a tree. Tree is stored in an array in expansion order, the root first.
//LeftIndex and RightIndex are equal to -1 when the current node is a leaf, otherwise they contain
//array indices of children and Split holds the decision.
type TreeNode struct {
	TreeNodeId             int            `json:"id"`
	LeftIndex              int            `json:"left"`
	RightIndex             int            `json:"right"`
	Split                  *Split         `json:"split,omitempty"`
	MissingValuesDirection SplitDirection `json:"missing_values_direction"`
	Value                  float64        `json:"value"`
	ExamplesFraction       float32        `json:"examples_fraction"`
}

//NewLeafNode creates a leaf.
func NewLeafNode(treeNodeId int, value float64, examplesFraction float32) TreeNode {
	return TreeNode{
		TreeNodeId:       treeNodeId,
		LeftIndex:        -1,
		RightIndex:       -1,
		Value:            value,
		ExamplesFraction: examplesFraction,
	}
}

//NewBranchNode creates a branch whose children are linked later.
func NewBranchNode(treeNodeId int, split Split, missingValuesDirection SplitDirection, examplesFraction float32) TreeNode {
	return TreeNode{
		TreeNodeId:             treeNodeId,
		LeftIndex:              -1,
		RightIndex:             -1,
		Split:                  &split,
		MissingValuesDirection: missingValuesDirection,
		ExamplesFraction:       examplesFraction,
	}
}

//IsLeaf returns whether this node is a leaf.
func (node TreeNode) IsLeaf() bool {
	return node.Split == nil
}

//GraphDescription returns the description of a tree node for tree rendering as a graph
func (node TreeNode) GraphDescription() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", node.TreeNodeId))
	sb.WriteString(fmt.Sprintf("fraction: %6.4f\n", node.ExamplesFraction))
	if node.IsLeaf() {
		sb.WriteString(fmt.Sprintf("value: %8.5f", node.Value))
		return sb.String()
	}
	switch {
	case node.Split.Kind == ContinuousSplitKind && node.Split.BinIndex == 0:
		sb.WriteString(fmt.Sprintf("f_%d is missing", node.Split.FeatureIndex))
	case node.Split.Kind == ContinuousSplitKind:
		sb.WriteString(fmt.Sprintf("f_%d <= %6.5f", node.Split.FeatureIndex, node.Split.SplitValue))
	default:
		sb.WriteString(fmt.Sprintf("f_%d in {", node.Split.FeatureIndex))
		first := true
		for bin, direction := range node.Split.Directions {
			if bin == 0 || direction != Left {
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(fmt.Sprint(bin))
		}
		sb.WriteString("}")
	}
	return sb.String()
}

//Tree is one trained tree.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

//NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() int {
	n := 0
	for _, node := range tree.Nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

//Depth returns the number of edges on the longest root to leaf path.
func (tree *Tree) Depth() int {
	if len(tree.Nodes) == 0 {
		return 0
	}
	var walk func(ind int) int
	walk = func(ind int) int {
		node := tree.Nodes[ind]
		if node.IsLeaf() {
			return 0
		}
		return 1 + max(walk(node.LeftIndex), walk(node.RightIndex))
	}
	return walk(0)
}

//PredictBinned walks the tree for one example of already binned features.
func (tree *Tree) PredictBinned(binned *BinnedFeatures, example int) float64 {
	ind := 0
	for !tree.Nodes[ind].IsLeaf() {
		node := &tree.Nodes[ind]
		bin := binned.Bin(node.Split.FeatureIndex, example)
		if node.Split.BinDirection(bin) == Left {
			ind = node.LeftIndex
		} else {
			ind = node.RightIndex
		}
	}
	return tree.Nodes[ind].Value
}

//Predict walks the tree for one example of raw feature columns laid out like the training
//columns. NaN, infinite and unknown enum values are routed like the invalid bin during
//training; features beyond the given columns follow the missing-values direction.
func (tree *Tree) Predict(columns []FeatureColumn, example int, instructions []BinningInstruction) float64 {
	ind := 0
	for !tree.Nodes[ind].IsLeaf() {
		node := &tree.Nodes[ind]
		direction := node.MissingValuesDirection
		if j := node.Split.FeatureIndex; j < len(columns) {
			var bin int
			if columns[j].Kind == EnumColumnKind {
				bin = instructions[j].EnumBin(columns[j].EnumValues[example])
			} else {
				bin = instructions[j].NumberBin(columns[j].NumberValues[example])
			}
			direction = node.Split.BinDirection(bin)
		}
		if direction == Left {
			ind = node.LeftIndex
		} else {
			ind = node.RightIndex
		}
	}
	return tree.Nodes[ind].Value
}

func recurrentDraw(g *cgraph.Graph, tree *Tree, nodeNumber int, parentNode *cgraph.Node) error {
	currentNode, err := g.CreateNode(fmt.Sprint(tree.Nodes[nodeNumber].TreeNodeId))
	if err != nil {
		return err
	}

	if parentNode != nil {
		if _, err := g.CreateEdge("", parentNode, currentNode); err != nil {
			return err
		}
	}

	currentNode.Set("label", tree.Nodes[nodeNumber].GraphDescription())
	if tree.Nodes[nodeNumber].IsLeaf() {
		currentNode.Set("shape", "box")
		return nil
	}
	if err := recurrentDraw(g, tree, tree.Nodes[nodeNumber].LeftIndex, currentNode); err != nil {
		return err
	}
	return recurrentDraw(g, tree, tree.Nodes[nodeNumber].RightIndex, currentNode)
}

//DrawGraph builds a graphviz graph of the tree.
func (tree *Tree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, err
	}

	if err := recurrentDraw(graph, tree, 0, nil); err != nil {
		return nil, nil, err
	}

	return graphViz, graph, nil
}

//RenderFile draws the tree into a png, svg or jpg file.
func (tree *Tree) RenderFile(filename, figureType string) error {
	graphvizType, ok := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]
	if !ok {
		return fmt.Errorf("unknown figure type %q", figureType)
	}
	graphViz, graph, err := tree.DrawGraph()
	if err != nil {
		return err
	}
	defer func() {
		_ = graph.Close()
		_ = graphViz.Close()
	}()
	return graphViz.RenderFilename(graph, graphvizType, filename)
}
