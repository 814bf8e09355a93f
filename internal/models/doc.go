// Package models defines the budget entities that travel between devices.
//
// Every entity carries an Audit block. IDs are assigned by the device that
// creates the record and are never reused, ModifiedDateTime only moves
// forward, and deletion is logical: DeletedDateTime is set and the row stays.
package models
