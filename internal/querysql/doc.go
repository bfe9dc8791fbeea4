// Package querysql renders query models as parameterized SQL for
// PostgreSQL, MySQL and SQLite.
//
// A Renderer walks a querymodel.Model with querymodel.Walk, so placeholder
// order always equals the model's parameter order. Collection parameters
// bind as one array on PostgreSQL and expand to one placeholder per
// element elsewhere.
package querysql
