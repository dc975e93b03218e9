package filter

/*
Here the Env used in the broadcast target filters is defined.
Clients send filter expressions, so renaming a property breaks deployed clients.
*/

type Member struct {
	Id   string
	Name string
	Host bool
}

type Env struct {
	RoomCode    string
	MemberCount int
	Recipient   Member
	Sender      Member
}
