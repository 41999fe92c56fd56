// Package sqlitez is a small reflection ORM over SQLite.
//
// A Go struct is a table. The table is created on first use, and columns
// the struct gains later are added with ALTER TABLE. Rows are read back
// into the struct with nested structs, slices and maps decoded from JSON
// text.
//
//	type Person struct {
//		ID     int64 `sqlitez:"id,pk"`
//		Name   string
//		Age    int
//		Gender string
//	}
//
//	db, err := sqlitez.Open(ctx, sqlitez.Options{Path: "people.db"})
//	id, err := sqlitez.Insert(ctx, db, Person{Name: "Acx", Age: 22})
//	people, err := sqlitez.GetAll[Person](ctx, db, &read.Condition{
//		Values: []read.Value{{Column: "name", Value: "acx", LowerCase: true}},
//	})
//
// Every function ensures the table of its type parameter before it runs.
// A DB serializes access through a single connection by default, so rows
// are always fully read before the next statement starts.
package sqlitez
