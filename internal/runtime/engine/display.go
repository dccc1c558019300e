package engine

import (
	"fmt"
	"sort"
)

// DisplayItem is one entry of display metadata.
type DisplayItem struct {
	Namespace string
	Key       string
	Value     any
}

// DisplayDataProvider contributes display metadata.
type DisplayDataProvider interface {
	PopulateDisplayData(builder DisplayBuilder)
}

// DisplayBuilder collects display metadata.
type DisplayBuilder interface {
	Add(key string, value any) DisplayBuilder
	Include(namespace string, provider DisplayDataProvider) DisplayBuilder
}

// DisplayData is the default DisplayBuilder.
type DisplayData struct {
	namespace string
	items     map[string]DisplayItem
	visited   map[string]bool
}

// NewDisplayData returns an empty builder rooted at namespace.
func NewDisplayData(namespace string) *DisplayData {
	return &DisplayData{
		namespace: namespace,
		items:     make(map[string]DisplayItem),
		visited:   map[string]bool{namespace: true},
	}
}

func (d *DisplayData) Add(key string, value any) DisplayBuilder {
	d.items[d.namespace+"/"+key] = DisplayItem{Namespace: d.namespace, Key: key, Value: value}
	return d
}

// Include lets provider add items under namespace. Each namespace is included
// at most once so providers that include each other terminate.
func (d *DisplayData) Include(namespace string, provider DisplayDataProvider) DisplayBuilder {
	if provider == nil || d.visited[namespace] {
		return d
	}
	d.visited[namespace] = true

	outer := d.namespace
	d.namespace = namespace
	provider.PopulateDisplayData(d)
	d.namespace = outer
	return d
}

// Items returns the collected items ordered by namespace and key.
func (d *DisplayData) Items() []DisplayItem {
	items := make([]DisplayItem, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Namespace != items[j].Namespace {
			return items[i].Namespace < items[j].Namespace
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// Get returns the value recorded for key in namespace.
func (d *DisplayData) Get(namespace, key string) (any, bool) {
	item, ok := d.items[namespace+"/"+key]
	return item.Value, ok
}

func (d *DisplayData) String() string {
	return fmt.Sprintf("%v", d.Items())
}
