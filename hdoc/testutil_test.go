package hdoc

// testSchema returns a small schema used across the test suite: a
// "Document" root holding an ordered Array of "Task" nodes, each Task
// optionally assigned to a "Person" via a Single link and holding an
// ordered Array of "subtasks" (also Task), plus a Set of "watchers"
// (Person).
func testSchema() *Schema {
	types := map[string]NodeTypeDescriptor{
		"Document": {
			TypeName: "Document",
			Fields: map[string]FieldDescriptor{
				"tasks": {Kind: KindArray, Types: []string{"Task"}},
				"owner": {Kind: KindSingle, Types: []string{"Person"}},
			},
		},
		"Task": {
			TypeName: "Task",
			Fields: map[string]FieldDescriptor{
				"subtasks": {Kind: KindArray, Types: []string{"Task"}},
				"assignee": {Kind: KindSingle, Types: []string{"Person"}},
				"watchers": {Kind: KindSet, Types: []string{"Person"}},
			},
			DataFields: []string{"title", "done"},
		},
		"Person": {
			TypeName:   "Person",
			Fields:     map[string]FieldDescriptor{},
			DataFields: []string{"name"},
		},
	}
	return NewSchema("Document", types)
}

func newTestDocument() *NormalizedDocument {
	schema := testSchema()
	doc, err := NewNormalizedDocument(schema, NodeId{Type: "Document", ID: "doc1"}, map[string]interface{}{"title": "root"})
	if err != nil {
		panic(err)
	}
	return doc
}

func taskId(id string) NodeId    { return NodeId{Type: "Task", ID: id} }
func personId(id string) NodeId  { return NodeId{Type: "Person", ID: id} }
func docId() NodeId              { return NodeId{Type: "Document", ID: "doc1"} }
