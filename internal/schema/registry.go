package schema

// Registry maps table names to their descriptors. The descriptor set is fixed
// at startup; there is no runtime schema mutation.
type Registry struct {
	tables map[string]*Table
}

func NewRegistry() *Registry {
	r := &Registry{tables: make(map[string]*Table)}
	for _, t := range builtinTables() {
		r.tables[t.Name] = t
	}
	return r
}

// Get returns the descriptor for the given table name, or nil.
func (r *Registry) Get(name string) *Table {
	return r.tables[name]
}

// All returns every registered descriptor.
func (r *Registry) All() []*Table {
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	return tables
}

// audit is the server-managed column set stamped by the record writer on
// every table: generated id, tenant, actor and timestamp metadata.
func audit() []Column {
	return []Column{
		{Name: "id", Type: Int8},
		{Name: "countryid", Type: Int8},
		{Name: "createdby", Type: Int8},
		{Name: "updatedby", Type: Int8},
		{Name: "createdate", Type: Timestamp},
		{Name: "updatedate", Type: Timestamp},
	}
}

func table(name string, cols []Column, uniqueSets ...[]string) *Table {
	return &Table{
		Name:       name,
		Columns:    append(audit(), cols...),
		UniqueSets: uniqueSets,
	}
}

func builtinTables() []*Table {
	return []*Table{
		table("countries", []Column{
			{Name: "name", Type: Text},
			{Name: "code", Type: Text},
			{Name: "currency", Type: Text},
			{Name: "phoneprefix", Type: Text},
			{Name: "status", Type: Text},
		}, []string{"code"}),

		table("markets", []Column{
			{Name: "name", Type: Text},
			{Name: "code", Type: Text},
			{Name: "city", Type: Text},
			{Name: "status", Type: Text},
		}, []string{"code", "countryid"}),

		table("banks", []Column{
			{Name: "name", Type: Text},
			{Name: "code", Type: Text},
			{Name: "status", Type: Text},
		}, []string{"code", "countryid"}),

		table("products", []Column{
			{Name: "name", Type: Text},
			{Name: "vehicletype", Type: Text},
			{Name: "termweeks", Type: Int},
			{Name: "weeklyrate", Type: Int8},
			{Name: "status", Type: Text},
		}, []string{"name", "countryid"}),

		table("users", []Column{
			{Name: "username", Type: Text},
			{Name: "email", Type: Text},
			{Name: "passwordhash", Type: Text},
			{Name: "role", Type: Text},
			{Name: "profileid", Type: Int8},
			{Name: "active", Type: Bool},
		}, []string{"email"}),

		table("prospects", []Column{
			{Name: "firstname", Type: Text},
			{Name: "lastname", Type: Text},
			{Name: "email", Type: Text},
			{Name: "phone", Type: Text},
			{Name: "drivercode", Type: Text},
			{Name: "marketid", Type: Int8},
			{Name: "productid", Type: Int8},
			{Name: "invitecode", Type: Text},
			{Name: "inviteurl", Type: Text},
			{Name: "inviteexpiry", Type: Timestamp},
			{Name: "stage", Type: Text},
		}, []string{"email", "countryid"}),

		table("infosessions", []Column{
			{Name: "title", Type: Text},
			{Name: "venue", Type: Text},
			{Name: "marketid", Type: Int8},
			{Name: "sessiondate", Type: Date},
			{Name: "starttime", Type: Timestamp},
			{Name: "capacity", Type: Int},
			{Name: "status", Type: Text},
		}),

		table("sessionbookings", []Column{
			{Name: "sessionid", Type: Int8},
			{Name: "prospectid", Type: Int8},
			{Name: "attended", Type: Bool},
			{Name: "status", Type: Text},
		}, []string{"sessionid", "prospectid"}),

		table("documents", []Column{
			{Name: "prospectid", Type: Int8},
			{Name: "doctype", Type: Text},
			{Name: "reference", Type: Text},
			{Name: "issuedate", Type: Date},
			{Name: "expirydate", Type: Date},
			{Name: "status", Type: Text},
			{Name: "reviewnote", Type: Text},
		}, []string{"prospectid", "doctype"}),

		table("cbtquestions", []Column{
			{Name: "question", Type: Text},
			{Name: "optiona", Type: Text},
			{Name: "optionb", Type: Text},
			{Name: "optionc", Type: Text},
			{Name: "optiond", Type: Text},
			{Name: "answer", Type: Text},
			{Name: "category", Type: Text},
			{Name: "active", Type: Bool},
		}),

		table("cbtsessions", []Column{
			{Name: "prospectid", Type: Int8},
			{Name: "sessionkey", Type: Text},
			{Name: "questioncount", Type: Int},
			{Name: "status", Type: Text},
		}, []string{"sessionkey"}),

		table("cbtresults", []Column{
			{Name: "sessionid", Type: Int8},
			{Name: "prospectid", Type: Int8},
			{Name: "score", Type: Int},
			{Name: "total", Type: Int},
			{Name: "passed", Type: Bool},
			{Name: "takendate", Type: Timestamp},
		}),
	}
}
