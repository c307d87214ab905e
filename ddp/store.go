package ddp

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// the field a document's id is attached under when handed to observers
const IdField = "_id"

// Document is the field set of one document, as JSON values.
type Document map[string]any

// Clone makes a deep copy that shares nothing with the original.
// Values must be JSON values (nil, bool, numbers, string, []any, map[string]any),
// which is always true for documents decoded from frames.
func (self Document) Clone() (Document, error) {
	s, err := structpb.NewStruct(map[string]any(self))
	if err != nil {
		return nil, err
	}
	return Document(s.AsMap()), nil
}

// Collection maps document id to document.
type Collection map[string]Document

// collectionStore is the local mirror: collection name -> document id -> fields.
// Not safe for concurrent use, the client guards it with its state lock.
type collectionStore struct {
	collections map[string]Collection
}

func newCollectionStore() *collectionStore {
	return &collectionStore{
		collections: map[string]Collection{},
	}
}

// creates the collection if needed and sets the document to exactly `fields`.
// Any prior value at the id is replaced, not merged.
func (self *collectionStore) add(collectionName string, id string, fields map[string]any) Document {
	collection, ok := self.collections[collectionName]
	if !ok {
		collection = Collection{}
		self.collections[collectionName] = collection
	}
	doc := Document(fields)
	if doc == nil {
		doc = Document{}
	}
	collection[id] = doc
	return doc
}

// `fields` (even when empty) are upserted, otherwise `cleared` fields are deleted.
// Never both. Returns false if the document does not exist.
func (self *collectionStore) change(collectionName string, id string, fields map[string]any, cleared []string) (Document, bool) {
	doc := self.document(collectionName, id)
	if doc == nil {
		return nil, false
	}
	if fields != nil {
		for k, v := range fields {
			doc[k] = v
		}
	} else {
		for _, k := range cleared {
			delete(doc, k)
		}
	}
	return doc, true
}

// returns the removed document, or false if it did not exist
func (self *collectionStore) remove(collectionName string, id string) (Document, bool) {
	collection, ok := self.collections[collectionName]
	if !ok {
		return nil, false
	}
	doc, ok := collection[id]
	if !ok {
		return nil, false
	}
	delete(collection, id)
	return doc, true
}

func (self *collectionStore) collection(collectionName string) Collection {
	return self.collections[collectionName]
}

func (self *collectionStore) document(collectionName string, id string) Document {
	collection, ok := self.collections[collectionName]
	if !ok {
		return nil
	}
	return collection[id]
}
