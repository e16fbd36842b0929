package testhelpers

// SeedSQL creates the fixture tables scanned by integration tests.
//
//	discover_test.network_log   ip: 2 of 3 values are IPv4 addresses, email: all valid
//	discover_test.locations     lat/lng all in range, label has no pattern matches
//	discover_test.empty_table   no rows
//	hidden.secrets              tagged #pii, outside the fixture schema
const SeedSQL = `
CREATE SCHEMA IF NOT EXISTS discover_test;
COMMENT ON SCHEMA discover_test IS 'fixtures #scan';

CREATE TABLE discover_test.network_log (
	id      integer PRIMARY KEY,
	ip      text,
	contact varchar(255),
	note    text
);
COMMENT ON TABLE discover_test.network_log IS 'traffic #pii #network';
COMMENT ON COLUMN discover_test.network_log.contact IS '#pii';

INSERT INTO discover_test.network_log (id, ip, contact, note) VALUES
	(1, '10.0.0.1',    'ops@example.com',   NULL),
	(2, '192.168.1.20', 'dev@example.org',  NULL),
	(3, 'not-an-ip',    'sec@example.net',  NULL);

CREATE TABLE discover_test.locations (
	id    integer PRIMARY KEY,
	lat   double precision,
	lng   double precision,
	label text
);

INSERT INTO discover_test.locations (id, lat, lng, label) VALUES
	(1, 52.52,  13.405,  'berlin'),
	(2, 40.7128, -74.006, 'new york'),
	(3, NULL,   NULL,    'nowhere');

CREATE TABLE discover_test.empty_table (
	id   integer,
	name text
);

CREATE SCHEMA IF NOT EXISTS hidden;
CREATE TABLE hidden.secrets (
	id    integer,
	token text
);
COMMENT ON TABLE hidden.secrets IS '#pii';
`
